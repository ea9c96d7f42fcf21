// Package signature classifies captured page text against technology
// signatures.
//
// A Table is an ordered list of named pattern sets. Match reports, in table
// order, every name with at least one matching pattern. Tables come from the
// built-in defaults (Default), from a YAML or JSON file (Load), or the
// classification is delegated to the wappalyzer fingerprint database
// (NewWappalyzer). Every classifier is read-only after construction and safe
// for concurrent use by many workers.
package signature
