package sdk

// RegisterResponse is the server's answer to a successful registration.
type RegisterResponse struct {
	AgentID            string             `json:"agent_id"`
	DisplayName        string             `json:"display_name"`
	ClaimToken         string             `json:"claim_token"`
	ClaimURL           string             `json:"claim_url"`
	InitialSpawnRegion string             `json:"initial_spawn_region"`
	InitialResources   map[string]float64 `json:"initial_resources"`
	Instructions       string             `json:"instructions"`
}

// ObserveResponse is what the agent sees when it looks around.
type ObserveResponse struct {
	Tick          int64              `json:"tick"`
	Region        map[string]any     `json:"region"`
	VisibleAgents []map[string]any   `json:"visible_agents"`
	Resources     map[string]float64 `json:"your_resources"`
	Status        string             `json:"your_status"`
	Inbox         []Message          `json:"inbox"`
	PendingTrades []map[string]any   `json:"pending_trades"`
}

// ActionResponse acknowledges a submitted action.
type ActionResponse struct {
	ActionType string         `json:"action_type"`
	Details    map[string]any `json:"details"`
}

// Message is one delivered inbox message. Content reflects whatever
// communication noise was applied in transit.
type Message struct {
	ID             string  `json:"message_id"`
	Tick           int64   `json:"tick"`
	FromAgent      string  `json:"from_agent"`
	ToAgent        string  `json:"to_agent"`
	Content        string  `json:"content"`
	NoiseFactor    float64 `json:"noise_factor"`
	Readability    string  `json:"readability"`
	SenderRegion   string  `json:"sender_region"`
	ReceiverRegion string  `json:"receiver_region"`
}

// InboxResponse wraps an inbox query.
type InboxResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}
