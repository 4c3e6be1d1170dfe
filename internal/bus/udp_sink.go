package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// datagramSender is satisfied by *udp.Broadcaster.
type datagramSender interface {
	Send(payload []byte) error
}

// UDPSink publishes each message as one JSON datagram:
//
//	{"topic":"vectornav/IMU","stamp":"...","msg":{...}}
type UDPSink struct {
	sender datagramSender
	now    func() time.Time
}

func NewUDPSink(sender datagramSender) *UDPSink {
	return &UDPSink{sender: sender, now: func() time.Time { return time.Now().UTC() }}
}

func (s *UDPSink) Publish(topic string, msg any) error {
	b, err := json.Marshal(Message{Topic: topic, Stamp: s.now(), Msg: msg})
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	if err := s.sender.Send(b); err != nil {
		return fmt.Errorf("send %s: %w", topic, err)
	}
	return nil
}
