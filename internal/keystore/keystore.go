package keystore

import "fmt"

// Status is the numeric result of a keystore operation. Values mirror the
// platform keychain codes so diagnostics read the same.
type Status int32

const (
	StatusSuccess               Status = 0
	StatusIO                    Status = -36
	StatusParam                 Status = -50
	StatusInternal              Status = -2070
	StatusAuthFailed            Status = -25293
	StatusDuplicateItem         Status = -25299
	StatusItemNotFound          Status = -25300
	StatusInteractionNotAllowed Status = -25308
	StatusDecode                Status = -26275
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIO:
		return "io error"
	case StatusParam:
		return "invalid parameter"
	case StatusInternal:
		return "internal component error"
	case StatusAuthFailed:
		return "authentication failed"
	case StatusDuplicateItem:
		return "duplicate item"
	case StatusItemNotFound:
		return "item not found"
	case StatusInteractionNotAllowed:
		return "interaction not allowed"
	case StatusDecode:
		return "unable to decode item"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

type Class string

const ClassGenericPassword Class = "genp"

// SyncMode is the synchronizable attribute of a query.
type SyncMode int

const (
	// SyncUnset matches only items that are not synchronizable.
	SyncUnset SyncMode = iota
	SyncOn
	SyncOff
	// SyncAny matches items regardless of how they were written.
	SyncAny
)

type MatchLimit int

const (
	MatchOne MatchLimit = iota
	MatchAll
)

// Item is the attribute set of an add request.
type Item struct {
	Class          Class
	Account        string
	AccessGroup    string
	Synchronizable bool
	Data           []byte
}

// Query selects items. Empty Account and AccessGroup match any value.
type Query struct {
	Class          Class
	Account        string
	AccessGroup    string
	Synchronizable SyncMode
	MatchLimit     MatchLimit
	ReturnData     bool
}

// Client is the keystore surface the storage adapters depend on.
// Implementations must be safe for concurrent use.
type Client interface {
	Add(item Item) Status
	Delete(query Query) Status
	FindOne(query Query) ([]byte, Status)
}

type record struct {
	class          Class
	account        string
	accessGroup    string
	synchronizable bool
}

func (q Query) matches(r record) bool {
	if r.class != q.Class {
		return false
	}
	if q.Account != "" && r.account != q.Account {
		return false
	}
	if q.AccessGroup != "" && r.accessGroup != q.AccessGroup {
		return false
	}
	switch q.Synchronizable {
	case SyncAny:
		return true
	case SyncOn:
		return r.synchronizable
	default:
		return !r.synchronizable
	}
}

func validateItem(item Item) Status {
	if item.Class == "" || item.Account == "" {
		return StatusParam
	}
	return StatusSuccess
}

func validateQuery(q Query) Status {
	if q.Class == "" {
		return StatusParam
	}
	return StatusSuccess
}

func accessGroupOrDefault(group, fallback string) string {
	if group != "" {
		return group
	}
	return fallback
}
