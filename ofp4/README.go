/*
Package ofp4 implements openflow 1.3 protocol structures.

ofp4: ofp is short for openflow protocol, and 4 is "Protocol version 0x04".

Message wraps a Header and a typed Body. Encode computes the length field;
Decode checks it against the buffer and reports malformed input as a
*DecodeError whose Reply is the OFPT_ERROR body a peer should receive.
*/
package ofp4
