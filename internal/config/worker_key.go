package config

type WorkerKeyStruct struct {
	ArchiveQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ArchiveQueue: "intervue:archive_queue",
}
