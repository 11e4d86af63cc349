package verify

import "fmt"

const (
	msgAskCard            = "Before we proceed, please confirm the last four digits of the card used on this payment."
	msgCardRetry          = "I didn't get that. Please say just the last four digits."
	msgAskPhone           = "Thanks. Now please say the phone number you are calling from."
	msgPhoneReprompt      = "Please say the phone number you are calling from."
	msgPhoneRetry         = "I didn't catch that. Please say the phone digits, for example 'four one five…'"
	msgAskIntent          = "Thanks. Do you approve or cancel this payment?"
	msgIntentRetry        = "Please say approve or cancel."
	msgTransfer           = "I'm detecting an issue with this line. Transferring you to a fraud specialist now."
	msgLookupFailed       = "I'm having trouble finding this payment right now. Please hold while I try again."
	msgActionFailed       = "I'm sorry, I couldn't complete that request right now. Please try again in a moment."
	msgEscalationFailed   = "I'm sorry, I couldn't reach a specialist right now. Please call the number on the back of your card."
	msgNoVerificationData = "I can't verify this payment by phone. Let me connect you to a specialist."
)

func msgSayPhrase(phrase string) string {
	return fmt.Sprintf("Please say exactly: '%s'", phrase)
}

func msgRetryPhrase(phrase string) string {
	return fmt.Sprintf("Let's try again. Please say: '%s'", phrase)
}

func msgAlready(status string) string {
	return fmt.Sprintf("This payment is already %s. If you need help, I can connect you to a specialist.", status)
}

func msgConfirmPayment(amount, payee string) string {
	return fmt.Sprintf("You're confirming a payment of %s to %s. Do you approve or cancel this payment?", amount, payee)
}

func msgApproved(id string) string {
	return fmt.Sprintf("Approved. Confirmation %s. Goodbye.", id)
}

func msgCanceled(id string) string {
	return fmt.Sprintf("Canceled. Ticket %s. Goodbye.", id)
}

// Greeting is the agent's opening line for a call with the given phrase.
func Greeting(phrase string) string {
	return fmt.Sprintf("Hello, this is VeriWire. For verification, please say exactly: '%s'. "+
		"For example: 'blue cedar 37' or 'silver harbor 42'.", phrase)
}
