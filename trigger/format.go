package trigger

import (
	"fmt"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
)

// SummarizeMessages is a ready-made success formatter: the first text or
// URI record found, otherwise a record count.
func SummarizeMessages(messages []*nfc.NDEFMessage) string {
	records := 0
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		for _, r := range msg.Records() {
			if text, ok := r.GetText(); ok {
				return text
			}
			if uri, ok := r.GetURI(); ok {
				return uri
			}
		}
		records += msg.Len()
	}
	switch records {
	case 0:
		return "Empty badge"
	case 1:
		return "Read 1 record"
	default:
		return fmt.Sprintf("Read %d records", records)
	}
}
