package validator

// RegisterRequest is the portal sign-up form
type RegisterRequest struct {
	Email       string `json:"email" form:"email" validate:"required,email,max=255"`
	Password    string `json:"password" form:"password" validate:"required,strong_password,max=128"`
	DisplayName string `json:"display_name" form:"display_name" validate:"required,min=2,max=100"`
	PhotoURL    string `json:"photo_url" form:"photo_url" validate:"omitempty,url,max=500"`
}

// ConfirmPaymentRequest is posted by the portal after the hosted card widget succeeds
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" form:"payment_intent_id" validate:"required,max=255"`
}
