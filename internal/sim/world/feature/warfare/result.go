package warfare

type Result string

const (
	Success           Result = "SUCCESS"
	NoClan            Result = "NO_CLAN"
	NoPermission      Result = "NO_PERMISSION"
	SameClan          Result = "SAME_CLAN"
	TargetNotFound    Result = "TARGET_NOT_FOUND"
	NotVulnerable     Result = "NOT_VULNERABLE"
	InsufficientFunds Result = "INSUFFICIENT_FUNDS"
	AlreadyAtWar      Result = "ALREADY_AT_WAR"
	NotTerritory      Result = "NOT_TERRITORY"
	OwnTerritory      Result = "OWN_TERRITORY"
	NoWar             Result = "NO_WAR"
	ExpiredWar        Result = "EXPIRED_WAR"
	SiegeActive       Result = "SIEGE_ACTIVE"
	DatabaseError     Result = "DATABASE_ERROR"
)

func (r Result) OK() bool { return r == Success }

func (r Result) Reason() string {
	switch r {
	case Success:
		return "ok"
	case NoClan:
		return "you are not in a clan"
	case NoPermission:
		return "your clan role cannot declare war"
	case SameClan:
		return "a clan cannot declare war on itself"
	case TargetNotFound:
		return "no clan by that name"
	case NotVulnerable:
		return "target clan is fortified"
	case InsufficientFunds:
		return "clan bank cannot cover the declaration cost"
	case AlreadyAtWar:
		return "these clans are already at war"
	case NotTerritory:
		return "this chunk is not claimed"
	case OwnTerritory:
		return "you cannot besiege your own territory"
	case NoWar:
		return "your clan is not at war with the owner"
	case ExpiredWar:
		return "the war's siege window has closed"
	case SiegeActive:
		return "a siege is already under way here"
	case DatabaseError:
		return "storage failure, try again later"
	default:
		return string(r)
	}
}

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

func finish(done func(Outcome), o Outcome) Outcome {
	if done != nil {
		done(o)
	}
	return o
}
