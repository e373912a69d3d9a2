package vcsec

import (
	"crypto/rand"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeStateRequest builds the unauthenticated body-controller-state request.
// The request is a RoutableMessage addressed to the vehicle security domain
// whose payload is an UnsignedMessage carrying an empty InformationRequest
// (GET_STATUS). The routing address and UUID are fresh random bytes per
// request; the command carries no nonce or signature because it is
// unauthenticated.
func EncodeStateRequest() ([]byte, error) {
	routing := make([]byte, routingAddressLen)
	if _, err := rand.Read(routing); err != nil {
		return nil, fmt.Errorf("vcsec: failed to generate routing address: %w", err)
	}
	uuid := make([]byte, routingAddressLen)
	if _, err := rand.Read(uuid); err != nil {
		return nil, fmt.Errorf("vcsec: failed to generate request uuid: %w", err)
	}

	// to_destination: Destination{domain: DOMAIN_VEHICLE_SECURITY}
	toDest := protowire.AppendTag(nil, tagDomain, protowire.VarintType)
	toDest = protowire.AppendVarint(toDest, uint64(DomainVehicleSecurity))

	// from_destination: Destination{routing_address: <16 random bytes>}
	fromDest := protowire.AppendTag(nil, tagRoutingAddress, protowire.BytesType)
	fromDest = protowire.AppendBytes(fromDest, routing)

	// payload: UnsignedMessage{InformationRequest{GET_STATUS}}. GET_STATUS is
	// the zero enum value, so the InformationRequest encodes as empty.
	payload := protowire.AppendTag(nil, tagInformationRequest, protowire.BytesType)
	payload = protowire.AppendBytes(payload, nil)

	var msg []byte
	msg = protowire.AppendTag(msg, tagToDestination, protowire.BytesType)
	msg = protowire.AppendBytes(msg, toDest)
	msg = protowire.AppendTag(msg, tagFromDestination, protowire.BytesType)
	msg = protowire.AppendBytes(msg, fromDest)
	msg = protowire.AppendTag(msg, tagPayload, protowire.BytesType)
	msg = protowire.AppendBytes(msg, payload)
	msg = protowire.AppendTag(msg, tagUUID, protowire.BytesType)
	msg = protowire.AppendBytes(msg, uuid)
	msg = protowire.AppendTag(msg, tagFlags, protowire.VarintType)
	msg = protowire.AppendVarint(msg, requestFlags)
	return msg, nil
}
