package meter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type OnReading func(r Reading)

// Ingestor subscribes to the meter gateways' MQTT topic and turns incoming
// messages into readings. The system id is taken from the topic's wildcard
// segment, e.g. "meters/sys_42/power" yields "sys_42".
type Ingestor struct {
	mqttClient      mqtt.Client
	logger          *slog.Logger
	topic           string
	lastMessageTime ConcurrentTimer
	stopMonitorCh   chan struct{}
	OnReading       OnReading
}

func New(broker string, port int16, username, password, topic string) *Ingestor {
	logger := slog.Default().With("module", "meter")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID("netload")
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("meter MQTT connected")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("meter MQTT connection lost", slog.Any("error", err))
	}

	mqttLog := slog.Default().With("module", "mqtt")
	mqtt.CRITICAL = newMqttLogger(mqttLog, slog.LevelError)
	mqtt.ERROR = newMqttLogger(mqttLog, slog.LevelError)
	mqtt.WARN = newMqttLogger(mqttLog, slog.LevelWarn)

	return &Ingestor{
		mqttClient: mqtt.NewClient(opts),
		logger:     logger,
		topic:      topic,
	}
}

func (in *Ingestor) SetLogger(logger *slog.Logger) {
	in.logger = logger
}

func (in *Ingestor) Connect() error {
	in.logger.Debug("connecting meter MQTT client")

	if token := in.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	in.inactivityWatchdog()

	token := in.mqttClient.Subscribe(in.topic, 0, func(client mqtt.Client, msg mqtt.Message) {
		in.lastMessageTime.Reset()

		sid, ok := systemIDFromTopic(in.topic, msg.Topic())
		if !ok {
			in.logger.Warn("message on unexpected topic", slog.String("topic", msg.Topic()))
			return
		}

		var p readingPayload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			in.logger.Error("error when reading meter message",
				slog.String("system", sid), slog.Any("error", err))
			return
		}

		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			in.logger.Error("error when parsing meter timestamp",
				slog.String("system", sid), slog.Any("error", err))
			return
		}

		if in.OnReading != nil {
			in.OnReading(Reading{SystemID: sid, Timestamp: ts, Value: p.Output})
		}
	})

	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	return nil
}

func (in *Ingestor) Disconnect() {
	in.logger.Info("disconnecting meter mqtt client")
	if in.stopMonitorCh != nil {
		close(in.stopMonitorCh)
		in.stopMonitorCh = nil
	}

	token := in.mqttClient.Unsubscribe(in.topic)
	token.WaitTimeout(1 * time.Second)
	if token.Error() != nil {
		in.logger.Error("error unsubscribing from topic", slog.Any("error", token.Error()))
	}

	in.mqttClient.Disconnect(250)
}

// systemIDFromTopic matches an actual topic against the subscription pattern
// and returns the segment covered by the single "+" wildcard.
func systemIDFromTopic(pattern, topic string) (string, bool) {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return "", false
	}
	sid := ""
	for i := range pp {
		if pp[i] == "+" {
			sid = tp[i]
			continue
		}
		if pp[i] != tp[i] {
			return "", false
		}
	}
	if sid == "" {
		return "", false
	}
	return sid, true
}

func (in *Ingestor) inactivityWatchdog() {
	trafficOk := true
	maxElapsed := 60 * time.Second
	in.lastMessageTime.Reset()
	in.stopMonitorCh = make(chan struct{})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if in.lastMessageTime.Elapsed() >= maxElapsed {
					if trafficOk {
						in.logger.Warn(fmt.Sprintf("no incoming mqtt traffic for the last %.0f seconds", maxElapsed.Seconds()))
						trafficOk = false
					}
				} else {
					if !trafficOk {
						in.logger.Info("mqtt traffic is restored")
						trafficOk = true
					}
				}

			case <-in.stopMonitorCh:
				in.logger.Debug("stopping meter monitor routine")
				return
			}
		}
	}()
}
