package feed

import (
	"strings"

	"github.com/dhcgn/mailscan-to-drive/model"
)

// ExtractRecipientName returns the first recipient line, or model.UnknownRecipient
// when any level of the structure is missing or blank.
func ExtractRecipientName(node *Node) string {
	if node == nil || node.Recipients == nil || node.Recipients.Line1 == nil || node.Recipients.Line1.Text == nil {
		return model.UnknownRecipient
	}
	name := strings.TrimSpace(*node.Recipients.Line1.Text)
	if name == "" {
		return model.UnknownRecipient
	}
	return name
}

// ExtractDocumentURL returns the scanned document URL and whether it was present.
func ExtractDocumentURL(node *Node) (string, bool) {
	if node == nil || node.ScanDetails == nil || node.ScanDetails.ImageURL == nil {
		return "", false
	}
	url := strings.TrimSpace(*node.ScanDetails.ImageURL)
	return url, url != ""
}

// ToMailItem normalizes a raw node. DocumentURL is left empty when absent.
func ToMailItem(node *Node) model.MailItem {
	url, _ := ExtractDocumentURL(node)
	return model.MailItem{
		ID:            strings.TrimSpace(node.ID),
		RecipientName: ExtractRecipientName(node),
		DocumentURL:   url,
	}
}
