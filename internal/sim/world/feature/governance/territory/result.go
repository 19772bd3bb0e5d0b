package territory

// Result is the outcome code of a territory or bank operation.
type Result string

const (
	Success           Result = "SUCCESS"
	AlreadyClaimed    Result = "ALREADY_CLAIMED"
	OverLimit         Result = "OVER_LIMIT"
	NoClan            Result = "NO_CLAN"
	NoPermission      Result = "NO_PERMISSION"
	NotOwner          Result = "NOT_OWNER"
	NotTerritory      Result = "NOT_TERRITORY"
	InsufficientFunds Result = "INSUFFICIENT_FUNDS"
	InvalidAmount     Result = "INVALID_AMOUNT"
	DatabaseError     Result = "DATABASE_ERROR"
)

func (r Result) OK() bool { return r == Success }

func (r Result) Reason() string {
	switch r {
	case Success:
		return "ok"
	case AlreadyClaimed:
		return "this chunk is already claimed"
	case OverLimit:
		return "clan has reached its territory limit"
	case NoClan:
		return "you are not in a clan"
	case NoPermission:
		return "your clan role does not allow this"
	case NotOwner:
		return "your clan does not own this chunk"
	case NotTerritory:
		return "this chunk is not claimed"
	case InsufficientFunds:
		return "clan bank cannot cover the cost"
	case InvalidAmount:
		return "amount must be a positive number"
	case DatabaseError:
		return "storage failure, try again later"
	default:
		return string(r)
	}
}

// Outcome is a Result with an optional more specific reason.
type Outcome struct {
	Result Result
	Detail string
}

func (o Outcome) Reason() string {
	if o.Detail != "" {
		return o.Detail
	}
	return o.Result.Reason()
}

func fail(r Result) Outcome { return Outcome{Result: r} }
