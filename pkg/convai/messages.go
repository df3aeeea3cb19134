package convai

// Message types exchanged on the conversation socket.
const (
	typeInitiationClientData = "conversation_initiation_client_data"
	typeInitiationMetadata   = "conversation_initiation_metadata"
	typeAudio                = "audio"
	typeAgentResponse        = "agent_response"
	typeAgentCorrection      = "agent_response_correction"
	typeUserTranscript       = "user_transcript"
	typeInterruption         = "interruption"
	typePing                 = "ping"
	typePong                 = "pong"
)

// envelope is decoded first to pick the concrete message.
type envelope struct {
	Type string `json:"type"`
}

type initiationClientData struct {
	Type     string          `json:"type"`
	Override *configOverride `json:"conversation_config_override,omitempty"`
}

type configOverride struct {
	Agent agentOverride `json:"agent"`
}

type agentOverride struct {
	Prompt       *promptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
	Language     string          `json:"language,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

type initiationMetadata struct {
	Event struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	} `json:"conversation_initiation_metadata_event"`
}

type audioMessage struct {
	Event struct {
		Audio   string `json:"audio_base_64"`
		EventID int    `json:"event_id"`
	} `json:"audio_event"`
}

type agentResponseMessage struct {
	Event struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event"`
}

type agentCorrectionMessage struct {
	Event struct {
		Original  string `json:"original_agent_response"`
		Corrected string `json:"corrected_agent_response"`
	} `json:"agent_response_correction_event"`
}

type userTranscriptMessage struct {
	Event struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event"`
}

type interruptionMessage struct {
	Event struct {
		EventID int `json:"event_id"`
	} `json:"interruption_event"`
}

type pingMessage struct {
	Event struct {
		EventID int `json:"event_id"`
		PingMs  int `json:"ping_ms"`
	} `json:"ping_event"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

type userAudioChunk struct {
	Chunk string `json:"user_audio_chunk"`
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}
