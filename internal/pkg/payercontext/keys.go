package payercontext

// Locals keys shared by middlewares and controllers
const (
	KeyPayerID       = "payer_id"
	KeyInternalToken = "internal_token_ok"
)
