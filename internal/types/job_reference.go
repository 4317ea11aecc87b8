package types

// JobReference is the job posting a session is being tailored to.
type JobReference struct {
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
	URL     string `json:"url,omitempty"`
	Text    string `json:"text"`
}
