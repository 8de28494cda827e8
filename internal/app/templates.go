package app

// Template keys handed to outbound channels. Channels own the human-facing text.
const (
	TemplateReminder             = "sla_reminder"
	TemplateEscalation           = "escalation"
	TemplateEscalationVolumeHigh = "escalation_volume_high"
)
