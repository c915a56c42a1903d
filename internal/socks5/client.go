package socks5

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyError is a non-success reply to a CONNECT request.
type ReplyError struct {
	Rep byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5 connect failed: reply code %#04x", e.Rep)
}

// ClientDial negotiates on conn and asks the server to connect to address.
// It returns the address the server bound for the outbound leg.
func ClientDial(conn net.Conn, auth Auth, address string) (netip.AddrPort, error) {
	if err := ClientNegotiate(conn, auth); err != nil {
		return netip.AddrPort{}, err
	}
	return ClientConnect(conn, address)
}

func ClientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return fmt.Errorf("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	default:
		return fmt.Errorf("method %#04x: %w", neg.Method, ErrNoAcceptableMethod)
	}
}

// ClientConnect sends a CONNECT request for address and reads the reply.
func ClientConnect(conn net.Conn, address string) (netip.AddrPort, error) {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return netip.AddrPort{}, fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return netip.AddrPort{}, &ReplyError{Rep: rep.Rep}
	}

	return boundAddr(rep)
}

func boundAddr(rep *txsocks5.Reply) (netip.AddrPort, error) {
	if rep.Atyp == txsocks5.ATYPDomain || len(rep.BndPort) != 2 {
		return netip.AddrPort{}, fmt.Errorf("bound address: unsupported address type %#04x", rep.Atyp)
	}
	addr, ok := netip.AddrFromSlice(rep.BndAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("bound address: invalid length %d", len(rep.BndAddr))
	}
	return netip.AddrPortFrom(addr.Unmap(), binary.BigEndian.Uint16(rep.BndPort)), nil
}
