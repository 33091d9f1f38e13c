// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package catalog defines the closed vocabulary of events that may
// travel over the bus.
//
// Events are opaque string tokens. The token doubles as the pub/sub
// topic filter on the wire, so it must remain stable across releases
// and across the processes sharing one bus.
package catalog

// Event is a named notification type. The zero value is not a valid
// event.
type Event string

// String returns the wire token for e.
func (e Event) String() string { return string(e) }

// The event vocabulary. Components must only emit and register for
// tokens listed here; the bus itself treats them as opaque.
const (
	ClientSessionID Event = "CLIENT_SESSION_ID"
	ClientUID       Event = "CLIENT_UID"

	IMAPClientLogin          Event = "IMAP_CLIENT_LOGIN"
	IMAPServiceFailedToStart Event = "IMAP_SERVICE_FAILED_TO_START"
	IMAPServiceStarted       Event = "IMAP_SERVICE_STARTED"
	IMAPUnhandledError       Event = "IMAP_UNHANDLED_ERROR"

	KeymanagerDoneUploadingKeys      Event = "KEYMANAGER_DONE_UPLOADING_KEYS"
	KeymanagerFinishedKeyGeneration  Event = "KEYMANAGER_FINISHED_KEY_GENERATION"
	KeymanagerKeyFound               Event = "KEYMANAGER_KEY_FOUND"
	KeymanagerKeyNotFound            Event = "KEYMANAGER_KEY_NOT_FOUND"
	KeymanagerLookingForKey          Event = "KEYMANAGER_LOOKING_FOR_KEY"
	KeymanagerStartedKeyGeneration   Event = "KEYMANAGER_STARTED_KEY_GENERATION"

	MailFetchedIncoming    Event = "MAIL_FETCHED_INCOMING"
	MailMsgDecrypted       Event = "MAIL_MSG_DECRYPTED"
	MailMsgDeletedIncoming Event = "MAIL_MSG_DELETED_INCOMING"
	MailMsgProcessing      Event = "MAIL_MSG_PROCESSING"
	MailMsgSavedLocally    Event = "MAIL_MSG_SAVED_LOCALLY"
	MailUnreadMessages     Event = "MAIL_UNREAD_MESSAGES"

	RaiseWindow Event = "RAISE_WINDOW"

	SMTPConnectionLost               Event = "SMTP_CONNECTION_LOST"
	SMTPEndEncryptAndSign            Event = "SMTP_END_ENCRYPT_AND_SIGN"
	SMTPEndSign                      Event = "SMTP_END_SIGN"
	SMTPRecipientAcceptedEncrypted   Event = "SMTP_RECIPIENT_ACCEPTED_ENCRYPTED"
	SMTPRecipientAcceptedUnencrypted Event = "SMTP_RECIPIENT_ACCEPTED_UNENCRYPTED"
	SMTPRecipientRejected            Event = "SMTP_RECIPIENT_REJECTED"
	SMTPSendMessageError             Event = "SMTP_SEND_MESSAGE_ERROR"
	SMTPSendMessageStart             Event = "SMTP_SEND_MESSAGE_START"
	SMTPSendMessageSuccess           Event = "SMTP_SEND_MESSAGE_SUCCESS"
	SMTPServiceFailedToStart         Event = "SMTP_SERVICE_FAILED_TO_START"
	SMTPServiceStarted               Event = "SMTP_SERVICE_STARTED"
	SMTPStartEncryptAndSign          Event = "SMTP_START_ENCRYPT_AND_SIGN"
	SMTPStartSign                    Event = "SMTP_START_SIGN"

	SoledadCreatingKeys        Event = "SOLEDAD_CREATING_KEYS"
	SoledadDoneCreatingKeys    Event = "SOLEDAD_DONE_CREATING_KEYS"
	SoledadDoneDataSync        Event = "SOLEDAD_DONE_DATA_SYNC"
	SoledadDoneDownloadingKeys Event = "SOLEDAD_DONE_DOWNLOADING_KEYS"
	SoledadDoneUploadingKeys   Event = "SOLEDAD_DONE_UPLOADING_KEYS"
	SoledadDownloadingKeys     Event = "SOLEDAD_DOWNLOADING_KEYS"
	SoledadInvalidAuthToken    Event = "SOLEDAD_INVALID_AUTH_TOKEN"
	SoledadNewDataToSync       Event = "SOLEDAD_NEW_DATA_TO_SYNC"
	SoledadSyncReceiveStatus   Event = "SOLEDAD_SYNC_RECEIVE_STATUS"
	SoledadSyncSendStatus      Event = "SOLEDAD_SYNC_SEND_STATUS"
	SoledadUploadingKeys       Event = "SOLEDAD_UPLOADING_KEYS"

	UpdaterDoneUpdating Event = "UPDATER_DONE_UPDATING"
	UpdaterNewUpdates   Event = "UPDATER_NEW_UPDATES"
)
