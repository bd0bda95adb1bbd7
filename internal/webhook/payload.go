package webhook

// Trimmed GitHub event payload shapes: only the fields the state machine
// reads. Unknown fields are ignored on purpose; payloads are large.

type account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

type eventPayload struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64   `json:"id"`
		Account account `json:"account"`
	} `json:"installation"`
	Repository struct {
		Name  string  `json:"name"`
		Owner account `json:"owner"`
	} `json:"repository"`
	PullRequest struct {
		Number int `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
		User account `json:"user"`
	} `json:"pull_request"`
	Issue struct {
		Number int     `json:"number"`
		User   account `json:"user"`
		// Present (possibly empty) only when the issue is a pull request.
		PullRequest *struct{} `json:"pull_request"`
	} `json:"issue"`
	Comment struct {
		Body string  `json:"body"`
		User account `json:"user"`
	} `json:"comment"`
	MergeGroup struct {
		HeadSHA string `json:"head_sha"`
	} `json:"merge_group"`
}
