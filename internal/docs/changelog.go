package docs

// Release is one entry in the provider changelog.
type Release struct {
	Version string
	Date    string
	Notes   []string
}

// releases is the provider's release history, newest first. The head
// entry must match the version the provider manifest declares.
var releases = []Release{
	{
		Version: "3.0.0",
		Date:    "2022-06-07",
		Notes: []string{
			"Raise the minimum leapflow version to 2.2.0.",
			"Expose max_queue_size in the connection extras.",
		},
	},
	{
		Version: "2.0.1",
		Date:    "2021-08-30",
		Notes: []string{
			"Log the failing items alongside delivery errors.",
		},
	},
	{
		Version: "2.0.0",
		Date:    "2021-06-18",
		Notes: []string{
			"Raise the minimum leapflow version to 2.0.0.",
			"Operators apply their defaults without explicit wiring.",
		},
	},
	{
		Version: "1.1.0",
		Date:    "2021-05-01",
		Notes: []string{
			"Raise the minimum posthog client version to 1.4.9.",
			"Add the identify, alias and group identify operators.",
		},
	},
	{
		Version: "1.0.1",
		Date:    "2021-02-04",
		Notes: []string{
			"Correct the connection extras documentation.",
		},
	},
	{
		Version: "1.0.0",
		Date:    "2020-12-09",
		Notes: []string{
			"Initial release with the PostHog hook and the track event operator.",
		},
	},
}

// Releases returns the changelog entries, newest first.
func Releases() []Release {
	out := make([]Release, len(releases))
	copy(out, releases)
	return out
}
