package model

// Mode is the active intent filter of the chat input.
type Mode string

const (
	ModeNone       Mode = ""
	ModeReport     Mode = "report"
	ModeQuery      Mode = "query"
	ModeSummary    Mode = "summary"
	ModeSupplement Mode = "supplement"
)

// ParseMode maps user input to a Mode. Unknown values map to ModeNone.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeReport, ModeQuery, ModeSummary, ModeSupplement:
		return Mode(s)
	default:
		return ModeNone
	}
}
