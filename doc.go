/*
Package mapping provides immutable, versioned, diffable index mappings
(schemas) and the merge engine that evolves them. Mappings are built
from declared definitions, layered from templates, and grown at runtime
by the fields documents introduce, while any number of readers keep
using the versions they already hold.

Uses

- Merging declared mappings, templates and dynamic updates with
well-defined conflicts

- Diffing of versions, e.g. to log or replicate schema changes

- Content-addressed snapshots that can be stored in anything, like a
filesystem or blob store

Structure

A Mapping is a tree of ObjectNodes and FieldNodes under a root object,
plus a fixed set of MetadataFields and a free-form _meta block. Objects
are plain ("non-nested") or nested, or undetermined when nothing ever
said which; an undetermined object adopts the containment of whatever
it is merged with. Leaves have a FieldType that never changes once set,
settings such as analyzer or ignore_above, and optional multi-fields
indexing the same value another way.

Merging

Merge(base, incoming, reason) never modifies its inputs. The result
shares every subtree the merge did not touch, and when nothing changes
at all, base itself is returned, so callers can cheaply tell a no-op
from a new version. Conflicting containment or leaf types abort the
whole merge; there are no partial results.

Concurrency

A Coordinator holds the current mapping of one name. Reads are a single
atomic load. Updates are serialized so each one merges against the
version the previous one published; a Registry holds the coordinators
of many names. Documents are parsed against a mapping by package
docparse, and batches of them are indexed concurrently by package bulk.
*/
package mapping
