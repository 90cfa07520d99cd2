package query

import "strings"

// synonymGroups lists domain-related terms that are interchangeable in code search.
// Every term of a group expands to the other terms of the same group.
var synonymGroups = [][]string{
	{"remove", "delete", "drop", "strip", "erase"},
	{"duplicates", "unique", "dedupe", "distinct"},
	{"duplicate", "dedupe", "unique", "distinct"},
	{"create", "make", "build", "new", "init"},
	{"get", "fetch", "retrieve", "load", "read"},
	{"set", "assign", "update", "put"},
	{"find", "search", "lookup", "locate"},
	{"sort", "order", "rank"},
	{"parse", "decode", "deserialize", "unmarshal"},
	{"serialize", "encode", "marshal", "dump"},
	{"error", "exception", "failure", "err"},
	{"config", "configuration", "settings", "options"},
	{"auth", "authentication", "login", "authorize"},
	{"user", "account", "member"},
	{"list", "array", "slice", "collection"},
	{"map", "dict", "dictionary", "hashmap"},
	{"check", "validate", "verify", "test"},
	{"connect", "connection", "dial", "open"},
	{"close", "shutdown", "disconnect", "release"},
	{"send", "emit", "publish", "dispatch"},
	{"receive", "consume", "subscribe", "listen"},
	{"start", "run", "launch", "begin"},
	{"stop", "halt", "terminate", "kill"},
	{"file", "path", "document"},
	{"http", "request", "endpoint", "route"},
	{"cache", "memoize", "store"},
	{"log", "logger", "logging", "trace"},
	{"convert", "transform", "cast"},
	{"merge", "combine", "join", "concat"},
	{"split", "tokenize", "separate", "chunk"},
}

// synonymIndex maps a term to its alternates, built once from synonymGroups
var synonymIndex = buildSynonymIndex(synonymGroups)

func buildSynonymIndex(groups [][]string) map[string][]string {
	idx := make(map[string][]string)
	for _, group := range groups {
		for _, term := range group {
			for _, alt := range group {
				if alt == term || contains(idx[term], alt) {
					continue
				}
				idx[term] = append(idx[term], alt)
			}
		}
	}
	return idx
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Synonyms returns the alternate terms for term in table order, or nil
func Synonyms(term string) []string {
	return synonymIndex[strings.ToLower(term)]
}
