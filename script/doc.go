// Package script runs Update jobs written in Lua.
//
// A script defines a global function update(tick). Component values are
// exchanged as tables keyed by field name; a field with more than one lane
// is an array of numbers. Entities are plain numbers. The globals below
// are available while update runs; each checks the job's declared access.
//
//	get(type, entity)          value table, list of tables, or nil
//	set(type, entity, value)   write fields (single) or replace the list
//	remove(type, entity)       drop the value, returns true if present
//	each(type, fn)             call fn(entity, value) for every owner
//	viewports()                array of live viewport ids
//	log(...)                   write to the job logger at info level
//
// Fields missing from a table passed to set keep their current value, or
// zero for a new value.
package script
