package o365auth

import "fmt"

// Kind clasifica un fallo terminal del login. El controller es el único que
// lo traduce a status HTTP.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindInvalidCode
	KindStateMismatch
	KindTokenExchange
	KindIdentityFetch
	KindDomainNotAuthorized
	KindUserProvisioning
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInvalidCode:
		return "invalid_code"
	case KindStateMismatch:
		return "state_mismatch"
	case KindTokenExchange:
		return "token_exchange"
	case KindIdentityFetch:
		return "identity_fetch"
	case KindDomainNotAuthorized:
		return "domain_not_authorized"
	case KindUserProvisioning:
		return "user_provisioning"
	default:
		return "unknown"
	}
}

// FlowError es el resultado de error de Init/Redirect.
type FlowError struct {
	Kind    Kind
	Stage   Stage // etapa en la que falló
	Message string
	Detail  string // opcional, seguro de mostrar (ej. error_description del proveedor)
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("o365auth: %s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("o365auth: %s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Err }

// Mensajes visibles para el usuario.
const (
	msgConfig        = "Office 365 authentication parameters are not provided. Authentication aborted."
	msgInvalidCode   = "Invalid authorization code."
	msgStateMismatch = "Authentication state not matched. Aborted."
	msgTokenExchange = "Office 365 token not obtained. Authentication aborted."
	msgIdentityFetch = "User information not retrieved. Authentication failed."
	msgDomain        = "Authentication failed. User email is on a domain that can not be authenticated this way."
	msgProvisioning  = "Looking up in or adding user to our system was not successful. Authentication failed."
)
