package relay

import (
	"fmt"
	"io"
	"net"
	"strings"

	ilog "github.com/lorikeet-im/lorikeet/log"
	"github.com/lorikeet-im/lorikeet/proto"
	"github.com/lorikeet-im/lorikeet/server/session"
)

// handleConnection is the body of one connection task: it owns the read loop
// for the connection's whole lifetime. A closed or failing transport is the
// only disconnect signal.
func (r *Relay) handleConnection(conn net.Conn, clientID uint32) {
	remote := remoteIP(conn)
	clog := ilog.NewConnLogger(clientID, remote)
	clog.Info0("New client connected.")

	sess := r.sessions.Register(clientID)

	// Single socket writer: every frame to this client, whether a direct
	// response or fan-out from another connection, goes through the
	// session's outbound stream.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range sess.Outbound() {
			if _, err := conn.Write(frame); err != nil {
				clog.Debugf("Write failure: %v", err)
				return
			}
		}
	}()

	buf := make([]byte, proto.PacketSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			// Truncated frames and transport errors alike mean the
			// client is gone.
			clog.Info0("Client disconnected.")
			break
		}

		var packet proto.Packet
		if _, err := packet.Unmarshal(buf); err != nil {
			clog.Error("Frame decode failure: " + err.Error())
			break
		}
		r.dispatch(clientID, &packet, clog)
	}

	r.groups.Leave(clientID)
	r.sessions.Unregister(clientID)
	r.untrackConn(clientID)
	<-writerDone
	conn.Close()
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// dispatch reacts to one inbound packet and queues the response. Responses
// are server-originated: SenderID 0, stamped with the current time.
func (r *Relay) dispatch(clientID uint32, packet *proto.Packet, clog *ilog.Logger) {
	response := &proto.Packet{
		SenderID:  proto.ServerID,
		Timestamp: proto.TimestampNow(),
	}

	switch packet.Type {
	case proto.MSG_JOIN_GROUP:
		groupID := packet.GroupID
		if err := r.groups.Join(clientID, groupID); err != nil {
			response.Type = proto.MSG_ERROR
			response.SetText(fmt.Sprintf("Failed to join group %d", groupID))
			break
		}
		response.Type = proto.MSG_ACK
		response.GroupID = groupID
		response.SetText(fmt.Sprintf("Joined group %d", groupID))
		clog.Infof0("Client joined group %d.", groupID)
		r.replayHistory(clientID, groupID)

	case proto.MSG_CREATE_GROUP:
		name := packet.Text()
		newGroupID := r.groups.Create(name)
		response.Type = proto.MSG_ACK
		response.GroupID = newGroupID
		setTextClamped(response, fmt.Sprintf("Created group '%s' with ID %d", name, newGroupID))
		clog.Infof0("Client created group \"%v\" (%d).", name, newGroupID)

	case proto.MSG_LIST_GROUPS:
		response.Type = proto.MSG_ACK
		response.SetText(r.groupListing())

	case proto.MSG_TEXT:
		packet.SenderID = clientID
		packet.Timestamp = proto.TimestampNow()
		r.cache.Put(packet, r.opts.CacheTTL)
		r.fanOut(clientID, packet, clog)
		response.Type = proto.MSG_ACK
		response.SetText("Message sent")

	case proto.MSG_LEAVE_GROUP:
		r.groups.Leave(clientID)
		response.Type = proto.MSG_ACK
		response.SetText("Left group")
		clog.Info0("Client left group.")

	default:
		response.Type = proto.MSG_ERROR
		response.SetText("Unknown message type")
	}

	if err := r.sessions.Send(clientID, response); err != nil {
		clog.Warn("Response dropped: " + err.Error())
	}
}

// replayHistory pushes the most recent cached messages of groupID to a
// freshly joined client, newest first, retyped as history frames so live
// traffic stays distinguishable.
func (r *Relay) replayHistory(clientID uint32, groupID uint16) {
	for _, message := range r.cache.GroupHistory(groupID, int(r.opts.HistoryLimit)) {
		message.Type = proto.MSG_HISTORY
		r.sessions.Send(clientID, &message)
	}
}

// fanOut delivers a text message to every other current member of its group.
// Delivery is best effort; members with no live session or a saturated
// outbound buffer miss the frame.
func (r *Relay) fanOut(senderID uint32, packet *proto.Packet, clog *ilog.Logger) {
	for _, memberID := range r.groups.Members(packet.GroupID) {
		if memberID == senderID {
			continue
		}
		switch err := r.sessions.Send(memberID, packet); err {
		case nil:
			clog.Debugf("Delivered message to client %d.", memberID)
		case session.ErrSessionBusy:
			clog.Warnf("Client %d outbound saturated, frame dropped.", memberID)
		default:
			clog.Debugf("Client %d unreachable: %v", memberID, err)
		}
	}
}

// setTextClamped truncates text to the payload slot instead of failing.
func setTextClamped(p *proto.Packet, text string) {
	if len(text) > proto.PayloadCap {
		text = text[:proto.PayloadCap]
	}
	p.SetText(text)
}

// groupListing renders "id:name;" units, truncated at the last whole unit
// that fits the payload slot.
func (r *Relay) groupListing() string {
	var listing strings.Builder
	for _, info := range r.groups.List() {
		unit := fmt.Sprintf("%d:%s;", info.ID, info.Name)
		if listing.Len()+len(unit) > proto.PayloadCap {
			break
		}
		listing.WriteString(unit)
	}
	return listing.String()
}
