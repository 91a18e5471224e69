/*
Package cache implements an expiring, stale-tolerant key-value cache.

Each entry moves through three windows measured from its write time:

	fresh    age <= TTL                      returned as is
	stale    TTL < age <= TTL+StaleWindow     returned, one background refresh scheduled
	expired  age >  TTL+StaleWindow           treated as absent and deleted

When the entry count exceeds MaxEntries the oldest-written 20% are evicted.
A Cache may write through to a ports.KeyValueStore; store faults are logged
and degrade to a miss, never to an error.
*/
package cache
