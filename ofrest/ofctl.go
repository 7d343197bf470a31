package ofrest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	glog "github.com/golang/glog"

	controller "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/controller"
)

const (
	// Per-switch control channel: kSwitchControlChanPrefix:<dpid>.
	kSwitchControlChanPrefix = "lbctl"
	// All switches publish events here.
	kSwitchEventChan = "lbevent"
	// The traffic generator listens here during training.
	kTrafficControlChan = "lbtraffic"
)

// Per-switch event queue depth. A queue only backs up when that
// switch's handler is stuck in a wire op; packet-in bursts past this
// are shed, since a missed packet-in just re-triggers on the next
// table miss.
const kEventQueueDepth = 256

// OfctlHandler pushes flow-table commands to switches and feeds
// switch events back into the controller, both over redis pubsub.
// It is the controller's FlowPusher.
//
// Events route through one queue per dpid: events for the same
// switch are handled in arrival order, and a switch whose handler
// stalls never delays another switch's events.
type OfctlHandler struct {
	RedisClient

	mu     sync.Mutex
	queues map[int64]chan *eventMsg
}

func switchControlChan(dpid int64) string {
	return fmt.Sprintf("%s:%d", kSwitchControlChanPrefix, dpid)
}

func (h *OfctlHandler) publish(ctx context.Context, channel string, msg interface{}) error {
	if !h.IsConnEstablished() {
		return fmt.Errorf("control plane connection is not established")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = h.client.Publish(ctx, channel, payload).Result()
	return err
}

// FlowMod installs |rule| on switch |dpid|.
func (h *OfctlHandler) FlowMod(ctx context.Context, dpid int64, rule *controller.FlowRule) error {
	return h.publish(ctx, switchControlChan(dpid), &controlMsg{
		Type: kMsgFlowMod,
		Dpid: dpid,
		Rule: &flowModBody{
			Cookie:      rule.Cookie,
			Match:       rule.Match,
			Actions:     rule.Actions,
			Priority:    rule.Priority,
			IdleTimeout: rule.IdleTimeout,
		},
	})
}

// FlowRemove deletes all rules matching |m| on switch |dpid|.
func (h *OfctlHandler) FlowRemove(ctx context.Context, dpid int64, m controller.Match) error {
	return h.publish(ctx, switchControlChan(dpid), &controlMsg{
		Type:  kMsgFlowRemove,
		Dpid:  dpid,
		Match: &m,
	})
}

// PacketOut floods |data| out of every port of |dpid| except |inPort|.
func (h *OfctlHandler) PacketOut(ctx context.Context, dpid int64, inPort uint32, data []byte) error {
	return h.publish(ctx, switchControlChan(dpid), &controlMsg{
		Type:   kMsgPacketOut,
		Dpid:   dpid,
		InPort: inPort,
		Data:   data,
	})
}

// ARPReply emits a crafted ARP reply out of |port| of |dpid|.
func (h *OfctlHandler) ARPReply(ctx context.Context, dpid int64, port uint32, srcMAC, srcIP, dstMAC, dstIP string) error {
	return h.publish(ctx, switchControlChan(dpid), &controlMsg{
		Type:   kMsgARPReply,
		Dpid:   dpid,
		InPort: port,
		SrcMAC: srcMAC,
		SrcIP:  srcIP,
		DstMAC: dstMAC,
		DstIP:  dstIP,
	})
}

// RequestStats asks |dpid| to publish fresh port and flow counters.
func (h *OfctlHandler) RequestStats(ctx context.Context, dpid int64) error {
	return h.publish(ctx, switchControlChan(dpid), &controlMsg{
		Type: kMsgStatsRequest,
		Dpid: dpid,
	})
}

// StartTraffic signals the traffic generator to drive load for
// |duration| in episode |episode|.
func (h *OfctlHandler) StartTraffic(ctx context.Context, episode int, duration time.Duration) error {
	msg := fmt.Sprintf("start,%d,%d", episode, int(duration.Seconds()))
	if !h.IsConnEstablished() {
		return fmt.Errorf("control plane connection is not established")
	}
	_, err := h.client.Publish(ctx, kTrafficControlChan, msg).Result()
	return err
}

// StopTraffic signals the traffic generator to stand down.
func (h *OfctlHandler) StopTraffic(ctx context.Context) error {
	if !h.IsConnEstablished() {
		return fmt.Errorf("control plane connection is not established")
	}
	_, err := h.client.Publish(ctx, kTrafficControlChan, "stop").Result()
	return err
}

// RunEventLoop subscribes to the switch event channel and dispatches
// into |c| until |ctx| is done. Run as a goroutine; malformed events
// are logged and skipped.
func (h *OfctlHandler) RunEventLoop(ctx context.Context, c *controller.LBController) error {
	if !h.IsConnEstablished() {
		return fmt.Errorf("control plane connection is not established")
	}

	sub := h.client.Subscribe(ctx, kSwitchEventChan)
	defer sub.Close()

	// Fail fast if the subscription never establishes.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s failed: %v", kSwitchEventChan, err)
	}

	glog.Infof("Listening for switch events on %s", kSwitchEventChan)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("event channel closed")
			}
			h.route(ctx, c, []byte(msg.Payload))
		}
	}
}

// route parses one event payload and hands it to the owning switch's
// queue. The subscribe goroutine never runs a handler itself, so one
// switch blocking on a wire op cannot stall the others' events.
func (h *OfctlHandler) route(ctx context.Context, c *controller.LBController, payload []byte) {
	var ev eventMsg
	if err := json.Unmarshal(payload, &ev); err != nil {
		glog.Warningf("Malformed switch event dropped: %v", err)
		return
	}

	select {
	case h.queue(ctx, c, ev.Dpid) <- &ev:
	default:
		glog.Warningf("Event queue for dpid=%d is full, %s event dropped", ev.Dpid, ev.Type)
	}
}

// queue returns the dpid's event queue, starting its handler
// goroutine on first use. Handlers live until |ctx| is done; a
// departed switch's handler just idles.
func (h *OfctlHandler) queue(ctx context.Context, c *controller.LBController, dpid int64) chan *eventMsg {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.queues == nil {
		h.queues = make(map[int64]chan *eventMsg)
	}
	q, ok := h.queues[dpid]
	if !ok {
		q = make(chan *eventMsg, kEventQueueDepth)
		h.queues[dpid] = q
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-q:
					h.handleEvent(c, ev)
				}
			}
		}()
	}
	return q
}

func (h *OfctlHandler) handleEvent(c *controller.LBController, ev *eventMsg) {
	switch ev.Type {
	case kEventSwitchEnter:
		c.SwitchConnected(ev.Dpid)
	case kEventSwitchLeave:
		c.SwitchDisconnected(ev.Dpid)
	case kEventPacketIn:
		if ev.PacketIn == nil {
			glog.Warningf("packet_in event from dpid=%d has no packet body", ev.Dpid)
			return
		}
		ev.PacketIn.Dpid = ev.Dpid
		c.HandlePacketIn(ev.PacketIn)
	case kEventPortStats:
		for _, s := range ev.PortStats {
			c.HandlePortStats(ev.Dpid, s.Port, s.TxBytes)
		}
	case kEventFlowStats:
		for _, s := range ev.FlowStats {
			c.HandleFlowStats(ev.Dpid, s.Cookie, s.Packets, s.Bytes)
		}
	case kEventPortDesc:
		c.HandlePortDesc(ev.Dpid, ev.Ports)
	case kEventFlowRemoved:
		c.HandleFlowRemoved(ev.Dpid, ev.Cookie)
	default:
		glog.Warningf("Unknown switch event type %q from dpid=%d", ev.Type, ev.Dpid)
	}
}
