package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/lorikeet-im/lorikeet/proto"
)

func main() {
	fmt.Println("Lorikeet chat client.")
	config := parseConfigure()
	if config == nil {
		return
	}

	conn, err := net.Dial("tcp", config.RelayEndpoint.AuthorityString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("Connected to %v\n", config.RelayEndpoint.AuthorityString())

	done := make(chan struct{})
	go receiveLoop(conn, done, config.Plain.Value)

	printHelp()
	currentGroup := uint16(0)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			break
		}
		if quit := handleLine(conn, line, &currentGroup); quit {
			break
		}
		select {
		case <-done:
			return
		default:
		}
		fmt.Print("> ")
	}
}

func handleLine(conn net.Conn, line string, currentGroup *uint16) bool {
	var packet proto.Packet

	switch {
	case strings.HasPrefix(line, "/join "):
		raw := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
		groupID, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			fmt.Println("Usage: /join <group_id>")
			return false
		}
		packet.Type = proto.MSG_JOIN_GROUP
		packet.GroupID = uint16(groupID)
		*currentGroup = uint16(groupID)

	case strings.HasPrefix(line, "/create "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "/create "))
		if name == "" {
			fmt.Println("Usage: /create <group_name>")
			return false
		}
		packet.Type = proto.MSG_CREATE_GROUP
		if err := packet.SetText(name); err != nil {
			fmt.Println("Group name is too long.")
			return false
		}

	case line == "/list":
		packet.Type = proto.MSG_LIST_GROUPS

	case line == "/leave":
		packet.Type = proto.MSG_LEAVE_GROUP
		*currentGroup = 0

	case line == "/help":
		printHelp()
		return false

	case strings.HasPrefix(line, "/"):
		fmt.Println("Unknown command. Type /help for commands.")
		return false

	default:
		if *currentGroup == 0 {
			fmt.Println("Join a group first. (/join <group_id>)")
			return false
		}
		packet.Type = proto.MSG_TEXT
		packet.GroupID = *currentGroup
		if err := packet.SetText(line); err != nil {
			fmt.Println("Message is too long.")
			return false
		}
	}

	packet.Timestamp = proto.TimestampNow()
	if err := sendPacket(conn, &packet); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return true
	}
	return false
}

func sendPacket(conn net.Conn, packet *proto.Packet) error {
	buf := make([]byte, proto.PacketSize)
	if err := packet.Marshal(buf); err != nil {
		return err
	}
	_, err := conn.Write(buf)
	return err
}

func receiveLoop(conn net.Conn, done chan struct{}, plain bool) {
	defer close(done)

	buf := make([]byte, proto.PacketSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			fmt.Println("\nDisconnected from server")
			return
		}
		var packet proto.Packet
		if _, err := packet.Unmarshal(buf); err != nil {
			continue
		}

		switch packet.Type {
		case proto.MSG_TEXT:
			if plain {
				fmt.Printf("\n[Group %d] [User %d]: %s\n",
					packet.GroupID, packet.SenderID, packet.Text())
			} else {
				fmt.Printf("\n[Group %d] [User %d] %s: %s\n",
					packet.GroupID, packet.SenderID,
					proto.FormatTimestamp(packet.Timestamp), packet.Text())
			}
		case proto.MSG_HISTORY:
			if plain {
				fmt.Printf("\n[History] [User %d]: %s\n",
					packet.SenderID, packet.Text())
			} else {
				fmt.Printf("\n[History] [User %d] %s: %s\n",
					packet.SenderID, proto.FormatTimestamp(packet.Timestamp), packet.Text())
			}
		case proto.MSG_ACK:
			fmt.Printf("\n[Server]: %s\n", packet.Text())
		case proto.MSG_ERROR:
			fmt.Printf("\n[Error]: %s\n", packet.Text())
		}
		fmt.Print("> ")
	}
}

func printHelp() {
	fmt.Println("\n=== Chat Client Commands ===")
	fmt.Println("/join <group_id>     - Join a group")
	fmt.Println("/create <group_name> - Create a new group")
	fmt.Println("/list                - List all groups")
	fmt.Println("/leave               - Leave current group")
	fmt.Println("/help                - Show this help")
	fmt.Println("/quit                - Quit the client")
	fmt.Println("Type any message to send to current group")
}
