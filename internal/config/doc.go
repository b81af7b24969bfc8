// Package config loads the node configuration.
//
// A configuration file is YAML and only needs the keys it changes; every
// other key keeps its default:
//
//	identity: alice
//	transport:
//	  peers:
//	    bob: 192.168.1.20
//	audio:
//	  compression: alaw
//	jitter:
//	  delay: 150ms
//
// Command line flags are applied on top of the loaded file by the caller.
package config
