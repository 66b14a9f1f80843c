// internal/credits/plans.go
package credits

import "strings"

// Plan is the subscription tier attached to a credit account.
type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanStarter  Plan = "STARTER"
	PlanPro      Plan = "PRO"
	PlanBusiness Plan = "BUSINESS"
	PlanCustom   Plan = "CUSTOM"
)

// Purchasable reports whether the plan can be bought as a subscription.
// CUSTOM is a credit top-up, not a plan transition.
func (p Plan) Purchasable() bool {
	return p == PlanStarter || p == PlanPro || p == PlanBusiness
}

// Paid reports whether the plan carries an expiry. CUSTOM top-ups
// never set one.
func (p Plan) Paid() bool {
	return p == PlanStarter || p == PlanPro || p == PlanBusiness
}

// freeEmailDomains are consumer mail providers; signups from these get
// the smaller default credit grant.
var freeEmailDomains = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "outlook.com": {}, "hotmail.com": {},
	"live.com": {}, "aol.com": {}, "icloud.com": {}, "me.com": {},
	"msn.com": {}, "proton.me": {}, "protonmail.com": {}, "pm.me": {},
	"gmx.com": {}, "yandex.com": {}, "zoho.com": {}, "mail.com": {},
	"fastmail.com": {}, "rediffmail.com": {}, "inbox.com": {}, "hushmail.com": {},
}

// DefaultCredits picks the starting balance for a lazily created
// account. Unparsable addresses are treated like consumer mail.
func DefaultCredits(email string, freeMailGrant, workMailGrant int64) int64 {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return freeMailGrant
	}
	domain := strings.ToLower(email[at+1:])
	if _, ok := freeEmailDomains[domain]; ok {
		return freeMailGrant
	}
	return workMailGrant
}
