package mailer

type Service interface {
	SendOptInConfirmation(toEmail, guestName, recipeName string) error
	SendOwnerRecipeAlert(toEmail, ownerName, guestName, recipeName string) error
}
