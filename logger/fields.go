package logger

// Standard field key constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldRunID     = "run_id"
	FieldArtifact  = "artifact"
	FieldVersion   = "version"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldDuration  = "duration"
	FieldRows      = "rows"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	logger.Info("stage done", logger.Fields("stage", "merge", "rows", 42))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}
