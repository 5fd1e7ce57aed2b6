package constants

// Commands accepted on the command topic.
const (
	CommandCheckConnection = "checkConnection"
	CommandTriggerPoll     = "triggerPoll"
	CommandGetUsers        = "getUsers"
	CommandGetUsersFromDB  = "getUsersFromDB"
	CommandSetState        = "setState"
)
