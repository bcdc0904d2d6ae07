package main

const defaultFlagFile = "bert.hcl"
