package feed

// Page is one response of the mail-items endpoint.
type Page struct {
	Edges    []Edge    `json:"edges"`
	PageInfo *PageInfo `json:"pageInfo"`
}

type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type Edge struct {
	Node *Node `json:"node"`
}

// Node is the raw mail item. Every nested level may be absent.
type Node struct {
	ID          string       `json:"id"`
	Recipients  *Recipients  `json:"recipients"`
	ScanDetails *ScanDetails `json:"scanDetails"`
}

type Recipients struct {
	Line1 *TextLine `json:"line1"`
}

type TextLine struct {
	Text *string `json:"text"`
}

type ScanDetails struct {
	ImageURL *string `json:"imageUrl"`
}
