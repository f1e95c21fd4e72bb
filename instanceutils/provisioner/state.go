package provisioner

// State is the position of a run in the provisioning sequence.
type State string

const (
	StateInit                  State = "Init"
	StateConfigLoaded          State = "ConfigLoaded"
	StateLockChecked           State = "LockChecked"
	StateSkippedAlreadyRun     State = "SkippedAlreadyRun"
	StateDependenciesFetched   State = "DependenciesFetched"
	StateScriptDownloaded      State = "ScriptDownloaded"
	StateSentinelConfigWritten State = "SentinelConfigWritten"
	StateGuideInstalled        State = "GuideInstalled"
	StateLockWritten           State = "LockWritten"
	StateScriptExecuted        State = "ScriptExecuted"
	StateLogsUploaded          State = "LogsUploaded"
	StateDone                  State = "Done"
	StateFailed                State = "Failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateSkippedAlreadyRun:
		return true
	}
	return false
}
