package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldApplicationID = "application_id"
	FieldAppNumber     = "application_number"
	FieldStatus        = "status"
	FieldDecision      = "decision"
	FieldSource        = "source"
	FieldLedgerRows    = "ledger_rows"
	FieldToken         = "submission_token"
	FieldWorkflowState = "workflow_state"
	FieldErrorKind     = "error_kind"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentGateway  = "gateway"
	ComponentWorkflow = "workflow"
	ComponentRegistry = "registry"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentExport   = "export"
	ComponentScoring  = "scoring"
	ComponentCache    = "cache"
)
