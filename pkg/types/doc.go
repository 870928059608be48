/*
Package types provides the core interfaces and data structures shared
across the kernel: the virtual filesystem data model (FileMetadata,
ContentObject, Pointer), the ReBAC data model (ReBACTuple, NamespaceSchema,
RelationDef), and the component interfaces (CASBackend, MetadataStore,
ReplicatedLog, ReBACEngine, EventBus) that let internal/kernel orchestrate
its collaborators without depending on their concrete implementations.

# Architecture Overview

	┌─────────────────────────────────────────────┐
	│     External transports (FUSE, pkg/api)     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         internal/kernel (façade)            │
	└─────────────────────────────────────────────┘
	     │        │        │        │       │
	┌────┴──┐ ┌───┴────┐ ┌─┴───┐ ┌──┴───┐ ┌─┴──────┐
	│  CAS  │ │Metadata│ │ReBAC│ │Events│ │ReadSet │
	│       │ │ Store  │ │     │ │      │ │Registry│
	└───────┘ └────────┘ └─────┘ └──────┘ └────────┘

# Interface Contracts

The component interfaces (CASBackend, MetadataStore, ReplicatedLog,
ReBACEngine, ReadSetRegistry, EventBus) accept context.Context and return
explicit errors (always a *errors.KernelError from the kernel's own
components). The helper interfaces Cache, MetricsCollector and
ConfigManager take no context, HealthChecker takes one only in Check, and
of these only ConfigManager.Reload returns an error. All interfaces are
safe for concurrent use.
*/
package types
