package logger

// BaseFields are attached to every structured log line for this service.
func BaseFields() Fields {
	return Fields{
		"service": "windmill-worker",
	}
}

func ComponentFields(component string) Fields {
	return Fields{"component": component}
}

// JobFields describes a queue job for log correlation.
func JobFields(jobID, workspaceID, kind string) Fields {
	fields := ComponentFields("queue")
	fields["job_id"] = jobID
	fields["workspace_id"] = workspaceID
	fields["job_kind"] = kind
	return fields
}

// FlowFields describes a flow step for log correlation.
func FlowFields(flowJobID string, step int, moduleID string) Fields {
	fields := ComponentFields("flow")
	fields["flow_job_id"] = flowJobID
	fields["step"] = step
	fields["module_id"] = moduleID
	return fields
}

func PerformanceFields(durationMS int64, operation string) Fields {
	return Fields{
		"duration_ms": durationMS,
		"operation":   operation,
		"type":        "performance",
	}
}

func ErrorFields(errorKind string, err error) Fields {
	fields := Fields{"error_kind": errorKind}
	if err != nil {
		fields["error_message"] = err.Error()
	}
	return fields
}

func MergeFields(fieldSets ...Fields) Fields {
	result := make(Fields)
	for _, fields := range fieldSets {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}
