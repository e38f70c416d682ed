package core

// KeyCommand is the meaning of a single keypress
type KeyCommand int

const (
	KeyUnknown KeyCommand = iota
	KeyDiscard
	KeyDefer
	KeyActNow
	KeyAccept
	KeyReject
	KeyOptOut
	KeyBulkDiscard
	KeyQuit
	KeyYes
	KeyNo
)

const keyInterrupt = 3 // Ctrl-C in raw mode

// ParseReviewKey maps a keypress during manual review
func ParseReviewKey(r rune) KeyCommand {
	switch r {
	case '9':
		return KeyDiscard
	case '5':
		return KeyDefer
	case '1':
		return KeyActNow
	case '\r', '\n':
		return KeyAccept
	case ' ':
		return KeyReject
	case '0':
		return KeyOptOut
	case '-':
		return KeyBulkDiscard
	case 'q', 'Q', keyInterrupt:
		return KeyQuit
	}
	return KeyUnknown
}

// ParseConfirmKey maps a keypress during batch confirmation
func ParseConfirmKey(r rune) KeyCommand {
	switch r {
	case 'y', 'Y':
		return KeyYes
	case 'n', 'N':
		return KeyNo
	case 'q', 'Q', keyInterrupt:
		return KeyQuit
	}
	return KeyUnknown
}

// Action returns the disposition an override key selects
func (k KeyCommand) Action() (Action, bool) {
	switch k {
	case KeyDiscard:
		return ActionDiscard, true
	case KeyDefer:
		return ActionDefer, true
	case KeyActNow:
		return ActionActNow, true
	}
	return "", false
}
