package o365auth

// Stage es la etapa del flujo de login.
//
//	Start -> AwaitingCallback -> Validating -> Exchanging -> ResolvingIdentity
//	      -> CheckingDomain -> Provisioning -> Authenticated
//
// Cualquier etapa puede terminar en Failed.
type Stage int

const (
	StageStart Stage = iota
	StageAwaitingCallback
	StageValidating
	StageExchanging
	StageResolvingIdentity
	StageCheckingDomain
	StageProvisioning
	StageAuthenticated
	StageFailed
)

var stageNames = [...]string{
	"start",
	"awaiting_callback",
	"validating",
	"exchanging",
	"resolving_identity",
	"checking_domain",
	"provisioning",
	"authenticated",
	"failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}
