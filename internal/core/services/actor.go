package services

import "time"

// Actor types recorded in audit and history rows
const (
	ActorAdmin       = "admin"
	ActorDistributor = "distributor"
	ActorEmployee    = "employee"
	ActorCron        = "cron"
	ActorSystem      = "system"
)

// Actor is whoever triggered an operation
type Actor struct {
	Type string
	ID   uint
	Name string
	IP   string
}

// SystemActor marks writes the core makes on its own (auto reimbursement)
var SystemActor = Actor{Type: ActorSystem, Name: "system"}

// CronActor marks scheduled and cron-key triggered runs
var CronActor = Actor{Type: ActorCron, Name: "cron"}

func (a Actor) idPtr() *uint {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// Clock returns the current time. Services take one so tests can pin dates.
type Clock func() time.Time

// clockIn reads the wall clock in loc. Reference months and expiry days are
// calendar values of the business timezone, not of the host.
func clockIn(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return func() time.Time { return time.Now().In(loc) }
}
