package broker

// Topic namespace shared by every client of the conecta broker. External
// MQTT tools subscribe to TopicGlobal to watch the public room.
var (
	TopicNamespace   = "conectamobile"
	TopicChatPrefix  = TopicNamespace + "/" + "chat/"
	TopicGlobal      = TopicNamespace + "/" + "global"
	DefaultBrokerURL = "tcp://broker.hivemq.com:1883"
)

// DeliveryLevel is the assurance requested for a subscription. The MQTT
// QoS values are reused as-is.
type DeliveryLevel byte

const (
	AtMostOnce DeliveryLevel = iota
	AtLeastOnce
	ExactlyOnce
)
