package config

type WorkerKeyStruct struct {
	PersistSubmissionsQueue string
	NotificationsGroup      string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSubmissionsQueue: "persist_submissions_queue",
	NotificationsGroup:      "exstem_notifications",
}
