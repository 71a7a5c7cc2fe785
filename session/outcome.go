package session

import "github.com/dotside-studios/davi-nfc-sheet/nfc"

// Kind identifies which variant an Outcome holds.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal result of a scan.
//
// Messages is set only for KindSuccess. Err is set for KindFailure, and
// holds ErrUnsupported for KindUnsupported so failure formatters can
// render it like any other error.
type Outcome struct {
	Kind     Kind
	Messages []*nfc.NDEFMessage
	Err      error
}

// Success wraps the messages read during one session.
func Success(messages []*nfc.NDEFMessage) Outcome {
	return Outcome{Kind: KindSuccess, Messages: messages}
}

// Failure wraps the error that ended a session.
func Failure(err error) Outcome {
	return Outcome{Kind: KindFailure, Err: err}
}

// Unsupported reports that no session could be created because the
// reader is unavailable.
func Unsupported() Outcome {
	return Outcome{Kind: KindUnsupported, Err: ErrUnsupported}
}

// ResultSink turns an Outcome into the string shown as the session's
// final status. ok=false means the sink had nothing to show and the
// controller falls back to its default message.
type ResultSink func(Outcome) (display string, ok bool)
