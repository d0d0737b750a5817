package jobcreator

import (
	"sort"

	"oss.mash.dev/mash/collections"
	"oss.mash.dev/mash/jobdoc"
)

// ResolveTargetAccounts expands a job document's cloud_groups to their
// member accounts under requestingUser, unions them with the document's own
// cloud_accounts, and dedupes by account name (spec §4.4 step 3). Group
// membership is resolved purely by name against cfg; the full per-cloud
// account configuration (partition, region, etc.) is looked up from cfg
// later, by the cloud-specific expander.
func ResolveTargetAccounts(doc *jobdoc.JobDocument, requestingUser string, cfg *AccountsConfig) []string {
	seen := collections.NewHashSet[string]()
	ordered := make([]string, 0, len(doc.CloudAccounts)+len(doc.CloudGroups))

	add := func(name string) {
		if name == "" || seen.Contains(name) {
			return
		}
		_ = seen.Add(name)
		ordered = append(ordered, name)
	}

	for _, group := range doc.CloudGroups {
		for _, name := range cfg.AccountsInGroup(requestingUser, group) {
			add(name)
		}
	}
	for _, acct := range doc.CloudAccounts {
		add(acct.Name)
	}

	sort.Strings(ordered)
	return ordered
}
