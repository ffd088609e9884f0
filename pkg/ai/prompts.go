package ai

const ExtractPrompt = `
# Task Context
You are a helpful assistant that extracts entities and relationships from text
documents to build a knowledge graph.

# Detailed Task Description & Rules
- Identify all entities in the text. Use only these entity categories: %s
- Identify all relationships between the entities you found. Use only these
  relationship types where they apply: %s
- Extract at most %d entities. Prefer the most significant ones.
- Every relationship must connect two entities identified in step 1.
- Relationship weight is a number between 0 and 1 indicating how strongly the
  text supports the relationship.

# Output Formatting
Output one record per line, nothing else. Records use exactly this format:

("entity"$$$$<name>$$$$<category>$$$$<description>)
("relationship"$$$$<subject>$$$$<object>$$$$<predicate>$$$$<description>$$$$<weight>)

# Examples
("entity"$$$$RADIO CITY$$$$ORGANIZATION$$$$Radio City is India's first private FM radio station.)
("relationship"$$$$RADIO CITY$$$$INDIA$$$$located in$$$$Radio City operates in India.$$$$0.8)
`

const ExtractJSONPrompt = `
# Task Context
You are a helpful assistant that extracts entities and relationships from text
documents to build a knowledge graph.

# Detailed Task Description & Rules
- Identify all entities in the text. Use only these entity categories: %s
- Identify all relationships between the entities you found. Use only these
  relationship types where they apply: %s
- Extract at most %d entities. Prefer the most significant ones.
- Every relationship must connect two entities identified in step 1.
- Relationship weight is a number between 0 and 1 indicating how strongly the
  text supports the relationship.

# Output Formatting
Return a single JSON object:
{
  "entities": [{"name": "...", "category": "...", "description": "..."}],
  "relationships": [{"subject": "...", "object": "...", "predicate": "...", "description": "...", "weight": 0.8}]
}
`

const DescribePrompt = `
# Task Context
You are a helpful assistant that writes entity descriptions for a knowledge
graph.

# Background Data
Entity name: %s

Entity mentions:
%s

Relationship mentions:
%s

# Detailed Task Description & Rules
- Write one comprehensive description of the entity, consolidating all the
  mentions above.
- Resolve contradictions in favor of the majority of mentions.
- Write in full sentences, third person, without referring to "the mentions"
  or "the text".

# Output Formatting
Reply with the description text only.
`

const MergeDescriptionsPrompt = `
# Task Context
You are a helpful assistant that consolidates multiple descriptions of the
same entity into one.

# Background Data
Entity name: %s

Descriptions:
%s

# Detailed Task Description & Rules
- Merge all descriptions into a single coherent description.
- Keep every distinct fact; drop only repetitions.
- Resolve contradictions in favor of the majority of descriptions.

# Output Formatting
Wrap the final description between two $$ markers, like this:
$$<final description>$$
`

const CommunityReportPrompt = `
# Task Context
You are a helpful assistant that writes a structured report about a community
of related entities from a knowledge graph.

# Background Data
%s

# Detailed Task Description & Rules
- Summarize what connects the community's entities and why it matters.
- Base every statement on the entities and relationships above; do not invent
  facts.

# Output Formatting
Return a JSON object with this structure:
{
  "title": "<short community name>",
  "summary": "<one-paragraph executive summary>",
  "findings": ["<insight 1>", "<insight 2>"]
}
`
