package models

type ChainName string

const (
	BaseSepolia ChainName = "BaseSepolia"
	LiskSepolia ChainName = "LiskSepolia"
)

func (c ChainName) String() string {
	return string(c)
}

// ResultStatus tags the outcome of a read. Pending means the answer is not
// known yet and must never be rendered as an empty state.
type ResultStatus int

const (
	StatusPending ResultStatus = iota
	StatusSuccess
	StatusNotFound
	StatusError
)

func (s ResultStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
