// Package registry manages named caches with independent policies on top of a
// single shared key-value store.
//
// Every namespace is declared with a Policy. User-scoped namespaces derive the
// physical storage key as "namespace:userID:key", so users sharing one store
// never observe each other's entries.
package registry
